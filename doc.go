/*
go-posetree drives branching skeletal trees in real time from the output of a
body or hand landmark detector.

Detected landmarks are filtered, assigned to subject slots and averaged over
a sliding window by the pose package.  Every tree of the scene follows one
slot: its limb chains are aligned to the averaged pose without twist by the
skeleton package and its bones ease toward their targets on each render tick.
The skin package wraps every chain in a tapered shell weighted to its bones.

This package holds the installation Params with their defaults, validation
and loading from .env files and POSETREE_* environment variables.  The scene
package assembles the pieces and the runnable host is in the example
subdirectory.
*/
package posetree
