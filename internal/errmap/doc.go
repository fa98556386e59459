// Package errmap scores the reliability of a decision boundary map.
//
// Two estimators are provided, each a pure function over dense arrays:
//
//   - ProjectionEstimator compares the origin-distance rank orderings of a 2D
//     point set and its nD counterpart and turns label agreement inside a
//     fixed-size rank window into a trustworthiness error per sample.
//   - InverseProjectionEstimator measures how abruptly a decoded nD grid
//     changes between 4-connected cells and min-max normalises the result.
//
// Neither estimator keeps state between calls. Callers pass every array they
// need and receive a freshly allocated *mat.Dense.
//
// The rank ordering is a global proxy for neighbourhood, not a k-NN graph:
// two points at the same distance from the origin rank as neighbours even
// when they are far apart. Continuity is held at 1.
package errmap
