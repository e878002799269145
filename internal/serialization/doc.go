// Package serialization saves and loads weight tables in the SafeTensors
// format used across the HuggingFace ecosystem:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON, tensor name -> {dtype, shape, data_offsets}]
//	[tensor data: raw little-endian bytes]
//
// Tensors are written as F32 in alphabetical order. The writer records a
// SHA-256 of the data section in the metadata, and the reader checks it when
// present.
package serialization
