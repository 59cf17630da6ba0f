// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam provides types and functions that augment the BAM and SAM
// packages in github.com/grailbio/hts: genome sharding, record
// serialization, an ordered parallel BAM writer and .bai generation.
package bam
