/*Package interval implements the small amount of genomic-range arithmetic
  needed to decide which positions of a contig are reported.
  It assumes every position fits in a PosType, which is currently defined as
  int32 since that's what BAM files are limited to.
*/
package interval
