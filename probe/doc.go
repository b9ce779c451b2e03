// Package probe reads intrinsic media dimensions and negotiates the output
// width handed to the encoder.
//
// Probing runs a single ffprobe JSON call; when ffprobe cannot read a still
// image the header is decoded directly instead. Negotiation never upscales:
// the output width is at most the source width and the height is always
// left to the encoder so it follows the source aspect ratio.
package probe
