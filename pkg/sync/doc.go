/*
The sync package implements dirmirror's mirroring algorithm. It keeps a
destination directory tree convergent with a source directory tree, with the
source always winning.

There are two phases:
1) The initial sync walks the whole source tree and copies every directory and
   file to its mapped destination path. It runs to completion before anything
   else touches the destination.
2) The Translator then consumes filesystem events (Created, Modified, Deleted,
   Moved) one at a time and turns each into a destination mutation. Deletes and
   moves are followed by reaping, which removes destination directories that
   were left empty, walking upward but never past the destination root.

Every path is translated by the same rule: the destination path is the
destination root joined with the path relative to the source root. The
translation of each event re-checks the destination's current state, so
replaying an event after a partial failure converges to the same result.
*/
package sync
