// Package gpu is the boundary between the memory and resource-state core and a graphics
// API. Everything above it deals in opaque handles and these interfaces, so the core never
// depends on API object identity. gpu/soft provides an in-memory implementation.
package gpu
