// Package render contains the frame helpers shared by pipeline backends:
// cropping a camera frame to the output aspect ratio, the moving-average
// FPS label, RGB to RGBA conversion and JPEG encoding for viewers.
package render
