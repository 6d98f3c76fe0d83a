// Package export converts samples to Apache Arrow records and writes them as
// Parquet files.
package export

import (
	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/logflow/trackgen/internal/model"
)

// HitsSchema is the schema of hit table records.
func HitsSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "hit_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "y", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "z", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	}, nil)
}

// TracksSchema is the schema of track table records.
func TracksSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "particle_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "hit_ids", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: false},
		{Name: "species", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	}, nil)
}

// HitsRecord builds a record from a hit table, one row per hit in ascending
// hit id order. The caller releases the record.
func HitsRecord(hits model.HitTable) arrow.Record {
	b := array.NewRecordBuilder(memory.NewGoAllocator(), HitsSchema())
	defer b.Release()

	ids := b.Field(0).(*array.Int64Builder)
	xs := b.Field(1).(*array.Float64Builder)
	ys := b.Field(2).(*array.Float64Builder)
	zs := b.Field(3).(*array.Float64Builder)

	for _, id := range hits.IDs() {
		p := hits[id]
		ids.Append(id)
		xs.Append(p.X)
		ys.Append(p.Y)
		zs.Append(p.Z)
	}
	return b.NewRecord()
}

// TracksRecord builds a record from a track table, one row per particle in
// ascending particle id order. The trailing label of each track becomes the
// species column.
func TracksRecord(tracks model.TrackTable) arrow.Record {
	b := array.NewRecordBuilder(memory.NewGoAllocator(), TracksSchema())
	defer b.Release()

	pids := b.Field(0).(*array.Int64Builder)
	lists := b.Field(1).(*array.ListBuilder)
	values := lists.ValueBuilder().(*array.Int64Builder)
	species := b.Field(2).(*array.Int64Builder)

	for _, pid := range tracks.ParticleIDs() {
		track := tracks[pid]
		pids.Append(pid)
		lists.Append(true)
		values.AppendValues(track.HitIDs(), nil)

		label, _ := track.Label()
		species.Append(int64(label))
	}
	return b.NewRecord()
}
