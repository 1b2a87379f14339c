package orchestrator

import "time"

// rolloutTimeout bounds how long update-style jobs wait for a Deployment
// rollout to converge before treating it as failed.
const rolloutTimeout = 60 * time.Second
