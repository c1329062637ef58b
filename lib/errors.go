package lib

import "errors"

var (
	// Required weights, checkpoint or dataset directory is missing.
	ErrPathNotFound = errors.New("path not found")

	// Label file for a video does not exist.
	ErrAnnotationNotFound = errors.New("annotation file not found")

	// Label file is not valid JSON or has the wrong shape.
	ErrParse = errors.New("annotation parse error")

	// A key of the frames object is not a frame number.
	ErrMalformedFrameKey = errors.New("malformed frame key")

	// Detector, verb classifier or feature extractor failed.
	ErrInference = errors.New("inference error")

	ErrNoFeatures = errors.New("no features extracted")

	ErrDuplicateFrame = errors.New("duplicate frame number")
)
