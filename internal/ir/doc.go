// Package ir provides the interactivity graph intermediate representation.
//
// This package contains the data model only. Every other internal package
// imports ir; ir imports nothing internal. The compiler produces an ir.Graph,
// cleanup passes rewrite it, the codec serializes it and the engine executes it.
//
// Key design constraints:
//   - Nodes reference each other by index; index order is node-creation order
//   - Declarations are interned: identical (op, configuration shape, typed
//     sockets) share one index
//   - Values are typed and always serialize as component arrays
//   - A Graph holds no runtime state; sessions own all mutable state
package ir
