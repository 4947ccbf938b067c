// Package hashtable implements the bucketed hash table the open-inode
// index (package inode) and the per-process supplemental page table
// (package spt) are built on. Adapted from the teacher's hashtable
// package (biscuit/src/hashtable/hashtable.go); narrowed from the
// teacher's interface{}-keyed table to an int-keyed one, since every
// caller in this repository keys by a sector id or a virtual page number.
package hashtable

import "sync"

type elem_t struct {
	key   int
	value interface{}
	next  *elem_t
}

type bucket_t struct {
	sync.Mutex
	first *elem_t
}

// Hashtable_t maps int keys to values, bucketed and individually locked so
// that unrelated keys don't contend on the same mutex.
type Hashtable_t struct {
	table []*bucket_t
}

// MkHash allocates a new Hashtable_t with the given number of buckets.
func MkHash(size int) *Hashtable_t {
	if size <= 0 {
		size = 16
	}
	ht := &Hashtable_t{table: make([]*bucket_t, size)}
	for i := range ht.table {
		ht.table[i] = &bucket_t{}
	}
	return ht
}

func (ht *Hashtable_t) bucket(key int) *bucket_t {
	h := uint32(key) * 2654435761
	return ht.table[int(h)%len(ht.table)]
}

// Get looks up key and returns its value.
func (ht *Hashtable_t) Get(key int) (interface{}, bool) {
	b := ht.bucket(key)
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

// Set inserts key/value and returns false if key already existed (the
// existing value is left untouched, matching the teacher's Set).
func (ht *Hashtable_t) Set(key int, value interface{}) bool {
	b := ht.bucket(key)
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			return false
		}
	}
	b.first = &elem_t{key: key, value: value, next: b.first}
	return true
}

// Del removes a key from the table. It is a no-op if the key is absent.
func (ht *Hashtable_t) Del(key int) {
	b := ht.bucket(key)
	b.Lock()
	defer b.Unlock()
	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			if last == nil {
				b.first = e.next
			} else {
				last.next = e.next
			}
			return
		}
		last = e
	}
}

// Pair_t is a key/value tuple returned by Elems.
type Pair_t struct {
	Key   int
	Value interface{}
}

// Elems returns every key/value pair currently stored.
func (ht *Hashtable_t) Elems() []Pair_t {
	var p []Pair_t
	for _, b := range ht.table {
		b.Lock()
		for e := b.first; e != nil; e = e.next {
			p = append(p, Pair_t{Key: e.key, Value: e.value})
		}
		b.Unlock()
	}
	return p
}

// Size returns the total number of elements stored.
func (ht *Hashtable_t) Size() int {
	n := 0
	for _, b := range ht.table {
		b.Lock()
		for e := b.first; e != nil; e = e.next {
			n++
		}
		b.Unlock()
	}
	return n
}
