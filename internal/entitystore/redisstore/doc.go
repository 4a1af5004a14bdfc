// Package redisstore implements the entity store port on Redis.
//
// Layout, for a key prefix P:
//
//	P:entity:<ref>   hash {type, version, data}; data is a msgpack record
//	P:entities       sorted set of references (score 0) used for listing
//	P:lock:<ref>     prepare lock, SET NX PX with a random token
//
// Prepare takes the locks for every reference in the batch in sorted order.
// A lock held by another writer is reported as a concurrent modification so
// callers retry instead of blocking. Versions are checked once all locks are
// held. Commit applies every write in one MULTI/EXEC transaction and then
// releases the locks with a compare-and-delete script, so a lock that expired
// and was taken over is never released by the previous owner.
//
// Locks expire after LockTTL; a batch left prepared longer than that loses
// its protection.
package redisstore
