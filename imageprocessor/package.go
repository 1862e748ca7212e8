// Package imageprocessor is the OpenCV hashing backend: it loads project
// images and query payloads into gocv.Mat values and computes their
// difference and perceptual hashes.
package imageprocessor
