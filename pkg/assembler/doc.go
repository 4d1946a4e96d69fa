// Package assembler builds the context bundle handed to an agent when a
// task is dispatched.
//
// A bundle opens with the task card (record header plus body) and then walks
// the seed, optional, and deep layers of the task's context manifest,
// resolving each ref through a resolver chain and appending the result while
// the character budget allows. The deep layer is only included on request.
// When a section would overflow the budget it is truncated, provided at
// least 100 characters remain, and marked with a truncation notice.
//
// Without an explicit inputs/context-manifest.json, every file in the task's
// inputs directory seeds the bundle.
package assembler
