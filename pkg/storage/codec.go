package storage

import (
	"bytes"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/openet/core/pkg/raster"
	"github.com/openet/core/pkg/utils"
)

// PixelRow is one band value of one pixel. A nil Value is a masked pixel.
type PixelRow struct {
	Image        string   `parquet:"name=image, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TimeStart    int64    `parquet:"name=time_start, type=INT64"`
	SpacecraftID string   `parquet:"name=spacecraft_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SceneID      string   `parquet:"name=scene_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Band         string   `parquet:"name=band, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Row          int32    `parquet:"name=row, type=INT32"`
	Col          int32    `parquet:"name=col, type=INT32"`
	Width        int32    `parquet:"name=width, type=INT32"`
	Height       int32    `parquet:"name=height, type=INT32"`
	Value        *float64 `parquet:"name=value, type=DOUBLE, repetitiontype=OPTIONAL"`
}

const readBatch = 4096

// EncodeCollection writes every pixel of every band as a snappy compressed parquet table
func EncodeCollection(coll *raster.Collection) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewParquetWriter(pfw, new(PixelRow), 4)
	if err != nil {
		return nil, wrapError(CodeCodecFailed, false, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, img := range coll.Images {
		base := PixelRow{
			Image:        img.Props.Index,
			TimeStart:    utils.Millis(img.Props.TimeStart),
			SpacecraftID: img.Props.SpacecraftID,
			SceneID:      img.Props.SceneID,
			Width:        int32(img.Width),
			Height:       int32(img.Height),
		}
		for _, b := range img.Bands() {
			for i := range b.Data {
				row := base
				row.Band = b.Name
				row.Row = int32(i / img.Width)
				row.Col = int32(i % img.Width)
				if b.IsValid(i) {
					v := b.Data[i]
					row.Value = &v
				}
				if err := pw.Write(row); err != nil {
					_ = pw.WriteStop()
					_ = pfw.Close()
					return nil, wrapError(CodeCodecFailed, false, err)
				}
			}
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, wrapError(CodeCodecFailed, false, err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

// DecodeCollection rebuilds a collection from a parquet pixel table. Images
// and bands keep the order in which they first appear.
func DecodeCollection(data []byte) (*raster.Collection, error) {
	tmp, err := os.CreateTemp("", "openet-*.parquet")
	if err != nil {
		return nil, wrapError(CodeReadFailed, true, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, wrapError(CodeReadFailed, true, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, wrapError(CodeReadFailed, true, err)
	}
	return ReadCollectionFile(tmp.Name())
}

// ReadCollectionFile decodes a parquet pixel table from disk
func ReadCollectionFile(path string) (*raster.Collection, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, wrapError(CodeReadFailed, false, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(PixelRow), 4)
	if err != nil {
		return nil, wrapError(CodeCodecFailed, false, err)
	}
	defer pr.ReadStop()

	type imageKey struct {
		index string
		time  int64
	}
	images := make(map[imageKey]*raster.Image)
	bands := make(map[imageKey]map[string]*raster.Band)
	var order []imageKey

	remaining := int(pr.GetNumRows())
	for remaining > 0 {
		n := readBatch
		if remaining < n {
			n = remaining
		}
		rows := make([]PixelRow, n)
		if err := pr.Read(&rows); err != nil {
			return nil, wrapError(CodeCodecFailed, false, err)
		}
		remaining -= n

		for _, r := range rows {
			key := imageKey{r.Image, r.TimeStart}
			img, ok := images[key]
			if !ok {
				if r.Width <= 0 || r.Height <= 0 {
					return nil, wrapError(CodeCodecFailed, false, fmt.Errorf("image %s has shape %dx%d", r.Image, r.Width, r.Height))
				}
				img = raster.NewImage(int(r.Width), int(r.Height), raster.Properties{
					Index:        r.Image,
					TimeStart:    utils.FromMillis(r.TimeStart),
					SpacecraftID: r.SpacecraftID,
					SceneID:      r.SceneID,
				})
				images[key] = img
				bands[key] = make(map[string]*raster.Band)
				order = append(order, key)
			}
			b, ok := bands[key][r.Band]
			if !ok {
				b = raster.Masked(r.Band, img.Len())
				if err := img.AddBand(b); err != nil {
					return nil, wrapError(CodeCodecFailed, false, err)
				}
				bands[key][r.Band] = b
			}
			i := int(r.Row)*img.Width + int(r.Col)
			if i < 0 || i >= b.Len() {
				return nil, wrapError(CodeCodecFailed, false, fmt.Errorf("pixel %d,%d outside %s", r.Row, r.Col, r.Image))
			}
			if r.Value != nil {
				b.Set(i, *r.Value)
			}
		}
	}

	out := raster.NewCollection()
	for _, key := range order {
		out.Images = append(out.Images, images[key])
	}
	return out, nil
}
