// Package dashboard extracts dashboard documents from dashboard sources.
//
// Every payload entry whose key matches the configured file pattern is parsed
// as a Grafana dashboard model. The resulting Document carries a deterministic
// IdentityKey derived from the source namespace, source name and payload key;
// the key is also written into the model as its uid. Entries that fail to parse
// are reported as ParseErrors without affecting the other entries.
package dashboard
