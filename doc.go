/*
Package sfdb implements an embedded document database stored in a single
file (on top of Bolt), with skip-list indexes and a small query algebra.

We implement:

1. Collections of schemaless documents, each identified by a unique _id.

2. Indexes over a field expression ("name", "$.addr.city", "tags[*]"),
optionally unique, kept as skip lists of index nodes.

3. Queries (EQ, Not, All, LT, LTE, GT, GTE, Between, In, StartsWith, Contains,
Where, Or, And) that run either by walking an index or by filtering every
document, with the same result.

4. Locking for one process (exclusive mode) or several (shared mode), plus a
read-only mode.

# Technical Details

**Values.**
A Value is a tagged union. The tag doubles as the sort rank across types:
MinValue < Null < numbers < String < Document < Array < Binary < ObjectId <
Guid < Boolean < DateTime < MaxValue. Int32, Int64, Double and Decimal share
one rank and compare by magnitude.

**Buckets.**
Bolt holds four buckets: "nodes" (index nodes), "data" (documents), "catalog"
(one record per collection listing its indexes) and "meta" (format version,
address sequence). A PageAddress (page id, slot) is allocated from the meta
bucket sequence and is the key of a node or document.

**Skip lists.**
Every index has a head and a tail sentinel with MaxLevels levels. Nodes carry
prev/next addresses for each of their levels, so an index can be walked in
both directions. The catalog records the highest level in use (MaxLevel);
searches start there.

**Cache.**
Decoded nodes of committed data are cached by address. In shared mode the
lock file carries a write generation; when another process bumped it, the
cache is dropped before the lock is handed out.

## Binary encoding

**Value**: tag byte, then payload. Strings and binaries have no length prefix:
their length is supplied by the enclosing record.

**Node record**: levels (u8), key length (u16), key (tag + payload), data
block address, then prev and next addresses for each level.

**Document record**: a Document value. Document and Array payloads are
msgpack maps and arrays whose items are bin entries holding tagged values.
*/
package sfdb
