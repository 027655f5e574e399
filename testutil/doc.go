// Package testutil provides deterministic fixtures for recognition tests.
//
// This package is intended for use in tests and examples only.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	d := testutil.RandomDescriptor(rng, 4)
//
// # Synthetic Frames
//
//	red := testutil.Solid(128, 128, testutil.Red)
//	label := testutil.Patched(128, 128, testutil.Red, testutil.Blue, image.Rect(0, 0, 32, 16))
//	photo := rng.Perturb(red, 6, 4) // brighter, with sensor noise
package testutil
