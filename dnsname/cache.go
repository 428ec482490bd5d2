/*
Copyright (c) Meta Platforms, Inc. and affiliates.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dnsname

import (
	lru "github.com/hashicorp/golang-lru"
)

// Cache memoizes New. Query paths tend to resolve the same handful of
// qnames over and over, and packing a name is the expensive part.
// Safe for concurrent use.
type Cache struct {
	c *lru.Cache
}

// NewCache creates a Cache holding up to size parsed names.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the parsed Name for s, parsing and caching it on a miss.
func (c *Cache) Get(s string) (*Name, error) {
	if v, ok := c.c.Get(s); ok {
		return v.(*Name), nil
	}
	n, err := New(s)
	if err != nil {
		return nil, err
	}
	c.c.Add(s, n)
	return n, nil
}

// Len returns the number of cached names.
func (c *Cache) Len() int {
	return c.c.Len()
}
