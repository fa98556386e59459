// Package boundarymap generates decision boundary maps and their reliability
// maps.
//
// A Generator encodes the training and test corpus to 2D, samples a square
// grid over the encoded extent, decodes every grid point back to nD and
// classifies it. The resulting label and confidence images are returned
// together with the projection and inverse projection error maps computed by
// package errmap.
//
// The encoder, decoder and classifier are collaborators supplied by the
// caller. PCAProjector and CentroidClassifier are small reference
// implementations for tests and the command line tool.
package boundarymap
