// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Authoritative UDP DNS responder driven by a runloop.
package server
