/*Package interval loads target panels (BED files) and answers overlap queries
  against them, in a manner optimized for the amplicon/exon panels used by
  targeted-sequencing assays.
  (Note: unlike an interval-union, overlapping and duplicate regions are all
  kept; each one is a separate accumulation target.)
  It assumes every position fits in a PosType, which is currently defined as
  int32 since that's what BAM files are limited to.
*/
package interval
