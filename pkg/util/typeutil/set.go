// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package typeutil

import (
	"cmp"
	"slices"
)

// Set 是基于 map[T]struct{} 的泛型集合，nil 集合可读不可写。
type Set[T comparable] map[T]struct{}

func NewSet[T comparable](elements ...T) Set[T] {
	set := make(Set[T], len(elements))
	set.Insert(elements...)
	return set
}

// Insert 将元素插入集合，已存在的元素会被忽略。
func (set Set[T]) Insert(elements ...T) {
	for _, e := range elements {
		set[e] = struct{}{}
	}
}

// Remove 从集合中移除元素，不存在的元素会被忽略。
func (set Set[T]) Remove(elements ...T) {
	for _, e := range elements {
		delete(set, e)
	}
}

// Contain 判断 elements 是否都在集合中。
func (set Set[T]) Contain(elements ...T) bool {
	for _, e := range elements {
		if _, ok := set[e]; !ok {
			return false
		}
	}
	return true
}

// Complement 返回在 set 中但不在 other 中的元素组成的新集合。
func (set Set[T]) Complement(other Set[T]) Set[T] {
	ret := make(Set[T], len(set))
	for e := range set {
		if !other.Contain(e) {
			ret[e] = struct{}{}
		}
	}
	return ret
}

// Collect 返回集合中所有元素，顺序不固定。
func (set Set[T]) Collect() []T {
	elements := make([]T, 0, len(set))
	for e := range set {
		elements = append(elements, e)
	}
	return elements
}

func (set Set[T]) Len() int {
	return len(set)
}

// Sorted 返回排序后的元素，用于生成稳定的错误信息。
func Sorted[T cmp.Ordered](set Set[T]) []T {
	elements := set.Collect()
	slices.Sort(elements)
	return elements
}
