package store

// Niche is a bundle-adjacent preset applied to a box at provision time: a
// system prompt and a display name selected by the bundle's niche slug.
type Niche struct {
	Slug         string
	Name         string
	SystemPrompt string
}

// Niches is the lookup table for bundle presets. Additional entries are
// expected to be added as the catalog grows; this module carries the one
// preset present in the source catalog.
var Niches = map[string]Niche{
	"pharmacy": {
		Slug: "pharmacy",
		Name: "Farmácia",
		SystemPrompt: "Você é um assistente virtual para uma farmácia. Responda de forma " +
			"clara e objetiva, ajudando clientes com dúvidas sobre produtos, horários de " +
			"funcionamento e disponibilidade de medicamentos. Nunca forneça orientação " +
			"médica ou recomende medicamentos — encaminhe questões de saúde a um " +
			"farmacêutico ou profissional de saúde.",
	},
}

// NicheBySlug returns the niche for a bundle slug and whether it was found.
func NicheBySlug(slug string) (Niche, bool) {
	n, ok := Niches[slug]
	return n, ok
}
