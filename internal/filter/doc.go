// Package filter implements the CPU separable Gaussian blur used by the
// default blur kernel.
//
// The filter operates on raw premultiplied RGBA byte buffers so it can be
// shared by any buffer owner without import cycles. The two-pass separable
// algorithm processes horizontal and vertical passes independently,
// achieving O(w*h*r) complexity instead of O(w*h*r²).
package filter
