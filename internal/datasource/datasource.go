// Package datasource implements the transaction/bundle data source and
// the sampling/composite wrappers: it turns a transaction or nested
// data-item identifier into a verified byte stream by iterating chunks in
// order, optionally clipped to a byte range, and composes multiple
// ContiguousDataSource implementations with ordered fallback or
// probabilistic routing.
package datasource

import (
	"context"
	"io"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/merkle"
	"github.com/ar-io/gatewaycore/internal/types"
)

// ContiguousDataSource is the narrow behavior trait every data-source
// implementation in this package satisfies.
type ContiguousDataSource interface {
	GetData(ctx context.Context, id types.Identifier, region *types.Region, attrs types.RequestAttributes) (types.ContiguousData, error)
}

// ChunkFetcher is satisfied by *chunksource.Source.
type ChunkFetcher interface {
	GetChunkByAny(ctx context.Context, params types.ChunkFetchParams) (types.Chunk, error)
}

// TxMetadataIndex resolves a transaction id to the data_root/size and
// weave-offset information needed to iterate its chunks. Schema ownership
// is out of scope; this is the narrow lookup contract the
// chain importer/indexer exposes.
type TxMetadataIndex interface {
	GetDataRoot(ctx context.Context, txID types.Identifier) (dataRoot types.Identifier, txSize int64, contentType string, err error)
	GetTxOffset(ctx context.Context, txID types.Identifier) (types.TxOffset, error)
}

// TxDataSource streams a whole transaction or a byte range of it by
// iterating its chunks in increasing relativeOffset order.
type TxDataSource struct {
	chunks  ChunkFetcher
	index   TxMetadataIndex
	log     *logrus.Entry
}

// New constructs a TxDataSource.
func New(chunks ChunkFetcher, index TxMetadataIndex, log *logrus.Logger) *TxDataSource {
	if log == nil {
		log = logrus.New()
	}
	return &TxDataSource{chunks: chunks, index: index, log: log.WithField("component", "datasource.tx")}
}

// GetData implements "whole transaction by id" and "range
// read" operations. region==nil streams the whole transaction.
func (s *TxDataSource) GetData(ctx context.Context, txID types.Identifier, region *types.Region, attrs types.RequestAttributes) (types.ContiguousData, error) {
	dataRoot, txSize, contentType, err := s.index.GetDataRoot(ctx, txID)
	if err != nil {
		return types.ContiguousData{}, types.Wrap(types.NotFound, "datasource.GetData", err)
	}
	txOffset, err := s.index.GetTxOffset(ctx, txID)
	if err != nil {
		return types.ContiguousData{}, types.Wrap(types.NotFound, "datasource.GetData", err)
	}

	rangeStart, rangeSize := int64(0), txSize
	if region != nil {
		rangeStart, rangeSize = region.Offset, region.Size
	}

	pr, pw := io.Pipe()
	go s.stream(ctx, pw, dataRoot, txSize, txOffset.StartOffset(), rangeStart, rangeSize, attrs)

	return types.ContiguousData{
		Body:              pr,
		Size:              rangeSize,
		SourceContentType: contentType,
		Verified:          true,
		Trusted:           true,
		Attrs:             attrs,
	}, nil
}

// stream pulls chunks in order starting at txStart+rangeStart, clipping
// each chunk to the requested [rangeStart, rangeStart+rangeSize) window,
// and writes the overlap to pw. It never fetches a chunk whose range lies
// entirely outside the requested window.
func (s *TxDataSource) stream(ctx context.Context, pw *io.PipeWriter, dataRoot types.Identifier, txSize, txStart, rangeStart, rangeSize int64, attrs types.RequestAttributes) {
	var yielded int64
	relOffset := rangeStart

	for yielded < rangeSize {
		params := types.ChunkFetchParams{
			TxSize:         txSize,
			DataRoot:       dataRoot,
			AbsoluteOffset: txStart + relOffset,
			RelativeOffset: relOffset,
			Attrs:          attrs,
		}
		chunk, err := s.chunks.GetChunkByAny(ctx, params)
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		chunkStart, chunkEnd, err := merkle.Bounds(dataRoot, chunk.DataPath, relOffset, txSize)
		if err != nil {
			pw.CloseWithError(types.Wrap(types.VerificationFailed, "datasource.stream", err))
			return
		}

		windowEnd := rangeStart + rangeSize
		overlapStart := max64(chunkStart, rangeStart)
		overlapEnd := min64(chunkEnd, windowEnd)
		if overlapEnd <= overlapStart {
			pw.CloseWithError(types.Wrap(types.VerificationFailed, "datasource.stream", errEmptyOverlap))
			return
		}

		sliceStart := overlapStart - chunkStart
		sliceEnd := overlapEnd - chunkStart
		if sliceEnd > int64(len(chunk.Data)) {
			sliceEnd = int64(len(chunk.Data))
		}
		if sliceStart < sliceEnd {
			if _, err := pw.Write(chunk.Data[sliceStart:sliceEnd]); err != nil {
				return // reader went away; underlying fetch loop stops here
			}
		}

		advanced := overlapEnd - overlapStart
		yielded += advanced
		relOffset = overlapEnd
		if relOffset >= txSize {
			break
		}
	}
	pw.Close()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

type dsError string

func (e dsError) Error() string { return string(e) }

const errEmptyOverlap dsError = "datasource: chunk does not overlap requested range"

// CompositeSource tries each wrapped ContiguousDataSource in order,
// recovering locally from NotFound, NetworkError, Timeout, CircuitOpen, and
// RateLimited by falling through to the next one; InvalidInput, HopsExceeded, and Cancelled are surfaced
// immediately.
type CompositeSource struct {
	sources []ContiguousDataSource
	log     *logrus.Entry
}

// NewComposite builds a CompositeSource trying sources in the given order.
func NewComposite(log *logrus.Logger, sources ...ContiguousDataSource) *CompositeSource {
	if log == nil {
		log = logrus.New()
	}
	return &CompositeSource{sources: sources, log: log.WithField("component", "datasource.composite")}
}

func (c *CompositeSource) GetData(ctx context.Context, id types.Identifier, region *types.Region, attrs types.RequestAttributes) (types.ContiguousData, error) {
	var lastErr error
	for _, src := range c.sources {
		data, err := src.GetData(ctx, id, region, attrs)
		if err == nil {
			return data, nil
		}
		switch types.KindOf(err) {
		case types.InvalidInput, types.HopsExceeded, types.Cancelled:
			return types.ContiguousData{}, err
		default:
			c.log.WithError(err).WithField("id", id.String()).Debug("data source unavailable, trying next")
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = types.ErrNotFound
	}
	return types.ContiguousData{}, lastErr
}

// SamplingSource routes to one of several sources at random, weighted by
// Weight, instead of always trying them in a fixed order.
type SamplingSource struct {
	entries []weightedSource
}

type weightedSource struct {
	source ContiguousDataSource
	weight int
}

// NewSampling builds a SamplingSource; weights need not sum to any
// particular total, only be positive.
func NewSampling(entries ...struct {
	Source ContiguousDataSource
	Weight int
}) *SamplingSource {
	ws := make([]weightedSource, 0, len(entries))
	for _, e := range entries {
		if e.Weight > 0 {
			ws = append(ws, weightedSource{source: e.Source, weight: e.Weight})
		}
	}
	return &SamplingSource{entries: ws}
}

func (s *SamplingSource) GetData(ctx context.Context, id types.Identifier, region *types.Region, attrs types.RequestAttributes) (types.ContiguousData, error) {
	total := 0
	for _, e := range s.entries {
		total += e.weight
	}
	if total == 0 {
		return types.ContiguousData{}, types.ErrNotFound
	}
	pick := rand.Intn(total)
	for _, e := range s.entries {
		if pick < e.weight {
			return e.source.GetData(ctx, id, region, attrs)
		}
		pick -= e.weight
	}
	return types.ContiguousData{}, types.ErrNotFound
}
