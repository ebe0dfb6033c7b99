// Package compression provides the two codecs used by pgtdump.
//
// # Page table runs
//
// Page tables are mostly empty, and the entries that aren't empty usually
// come in long stretches that map consecutive frames. Printing one line per
// entry would give 512 lines per table, most of them identical or differing
// from their neighbor by exactly one page.
//
// [Encoder] collapses such stretches into a single line. Each line is one of:
//
//	0000000000001063          a single entry
//	0000000000000000*509      the same entry repeated 509 times
//	0000000000200083*3+200000 three entries starting at 0x200083, each one
//	                          0x200000 larger than the previous
//
// Values are always printed as 16 uppercase hex digits. The step of an
// arithmetic run is printed in uppercase hex without padding and always has
// an explicit sign. Runs are detected greedily: an arithmetic run is only
// emitted once it has at least three members, and a value that ends one run
// can't start another one, so `1000 2000 3000 3000` becomes
// `0000000000001000*3+1000` followed by `0000000000003000`.
//
// [ParseRun] and [DecodeValues] turn the lines back into the original values.
//
// # Packed images
//
// Test images are raw physical memory dumps, and they are almost entirely
// null bytes. To keep them small they're run-length encoded with RLE8 (the
// scheme used by the Microsoft BMP file format) and then gzipped. Briefly, if
// a byte B occurs N times where N >= 2, B is written twice followed by a third
// (unsigned) byte indicating how many additional times B occurred:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// Runs longer than 257 bytes are split into several runs. A 16 MiB image with
// a handful of page tables packs down to a few hundred bytes.
package compression
