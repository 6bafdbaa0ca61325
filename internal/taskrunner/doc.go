// Package taskrunner maps operator-facing command names (help, cleanup-db,
// test-<size>, clear-results, docker-up, ...) to actions and executes them.
//
// Every invocation is synchronous: an action blocks until the external
// commands it starts have exited, and the exit status of the last command
// becomes the status of the task. The registry refuses duplicate names so a
// command name always resolves to exactly one action.
package taskrunner
