/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package spanneradmin is a hand-written client for the Cloud Spanner
// database admin API, focused on the long-running administrative operations:
// creating databases, creating and restoring backups, and updating database
// schemas.
//
// # Operation handles
//
// Methods that start server-side work return a typed operation handle, e.g.
// CreateBackupOperation. A handle tracks the operation by its server-assigned
// name. Wait blocks until the operation reaches a terminal state, polling the
// server with exponential backoff; Poll performs a single refresh; Done and
// Metadata inspect the handle without contacting the server. Bound the total
// wait with a context deadline: an expired context ends only the local wait,
// the server-side operation keeps running and the handle (or a new handle
// created from the operation's name) can be re-awaited.
//
// Cancellation is best effort. After CancelOperation the operation may still
// complete successfully; observing either outcome through the handle is
// expected.
//
// # Listing
//
// List methods return iterators over databases, backups or operations,
// fetching pages transparently. Filters are passed to the server verbatim;
// the client does no filtering of its own.
//
// This package does not cover the data plane. Use cloud.google.com/go/spanner
// to read and write data.
package spanneradmin

// internalVersion is reported to the server in the client header.
const internalVersion = "0.1.0"
