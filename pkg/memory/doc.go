// Package memory implements the tiered agent-memory store.
//
// State is partitioned across four tiers with different retention and
// query characteristics: Working (versioned workflow context), Episodic
// (workflow execution history), Semantic (knowledge items with vector
// embeddings), and Graph (typed relationships between entities).
//
// The Manager is the single write path. It validates entities, enforces
// per-entity access policies, computes integrity checksums, dispatches
// to tier backends, and records every state change in an append-only
// audit log. Agents never talk to a tier backend directly; they go
// through the session client façade in pkg/session.
package memory
