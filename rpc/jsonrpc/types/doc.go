// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package types implements concrete types for marshalling to and from the meshd
JSON-RPC commands, return values, and notifications.  A comprehensive suite
of tests is provided to ensure proper functionality.

The provided types are automatically registered with dcrjson when the package
is imported, so a JSON-RPC server only needs to call dcrjson.ParseParams with
a method in this package to receive the concrete command.
*/
package types
