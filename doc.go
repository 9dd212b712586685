package gtkv

/*
gtkv stores aggregated genotype calls of many studies in a single wide-column table. Every variant site is one physical
row, every study owns a set of columns in it, and each column holds one genotype bucket of the study's samples.

Building gtkv produces one executable, gtkv, which loads VCF files into the table, prints rows and study metadata, and
serves them over HTTP.

The `gtkv` module is organized into the following packages:

* `rowcodec`: the row key and column layout, and the encoding of aggregated rows into cells and back.
* `kv/row`: classification of per-sample genotypes into buckets, producing immutable rows.
* `kv/variant`: variants, genotypes and a VCF reader.
* `kv/storage`: the wide-column store interface with in-memory, badger and leveldb engines.
* `kv/lock`: a lease lock built on the store's compare-and-put.
* `kv/studyconfig`: versioned study configurations and the study name to id summary.
* `kv/loader`: parallel loading of a VCF stream into rows.
* `kv/server`: the HTTP query API.
*/
