// Package session is the agent-facing front of the memory store. A
// Client tracks one workflow at a time: it creates the workflow record
// and seed context snapshot, advances the snapshot chain on updates,
// and closes the record out with the produced version list. All reads
// and writes go through the memory manager, so governance (validation,
// access control, checksums, audit) applies to session traffic exactly
// as it does to direct manager calls.
//
// Field validation at this layer is advisory: rule violations are
// reported back to the agent as warnings while the write proceeds,
// unless the client is configured strict.
package session
