// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Given a BAM or SAM file and a BED file of target regions, bio-seq2c reports
the read depth of every region, in the table format consumed by seq2c's
copy-number calling scripts.

Sample usage:
bio-seq2c coverage \
    -bam sample.bam \
    -bed panel.bed \
    -sample SAMPLE1 \
    -out SAMPLE1.cov.tsv

The BED name column is used as the gene symbol.  For each region, a row
tagged "Amplicon" gives the region length and its mean depth, i.e. the
number of aligned (M, = or X) bases inside the region divided by the region
length.  Each gene gets an additional "Whole-Gene" row summarizing all of
its regions on one chromosome, unless -amplicons-only is set.

Work is spread over -parallelism shards of the genome holding about the same
number of regions each.  With a BAM index, every shard is read
independently; otherwise the file is read once and records are dispatched
to the shard workers.  The output does not depend on -parallelism.

The alignment format is detected from the -bam suffix; -format bam or
-format sam overrides it.

bio-seq2c plan prints the shard boundaries that a coverage run would use.
*/
package main
