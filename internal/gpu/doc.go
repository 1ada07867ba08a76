// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu implements the wgpu compute backend for the backdrop blur
// kernel.
//
// The backend runs the separable Gaussian blur as two compute dispatches
// of a single WGSL shader (horizontal then vertical pass), reading the
// result back through a staging buffer. Shaders are compiled WGSL to
// SPIR-V with gogpu/naga at initialization.
//
// A dispatcher either acquires its own standalone Vulkan device or reuses
// a device/queue pair shared by the host application.
package gpu
