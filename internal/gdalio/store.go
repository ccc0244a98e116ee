package gdalio

import (
	"fmt"

	"github.com/airbusgeo/godal"

	"github.com/hularuns/policy-analysis/internal/crs"
	"github.com/hularuns/policy-analysis/internal/raster"
)

// Store persists single band float32 GeoTIFFs with LZW compression and an
// embedded nodata value.
type Store struct{}

func NewStore() *Store {
	Register()
	return &Store{}
}

func (s *Store) Read(path string) (*raster.Raster, error) {
	var r *raster.Raster
	err := withGDAL(func() error {
		var err error
		r, err = readGTiff(path)
		return err
	})
	return r, err
}

func (s *Store) Write(path string, r *raster.Raster) error {
	return raster.WriteAtomic(path, func(tmpPath string) error {
		return withGDAL(func() error {
			return writeGTiff(tmpPath, r)
		})
	})
}

func readGTiff(path string) (*raster.Raster, error) {
	ds, err := godal.Open(path, godal.RasterOnly(), quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("%s has no raster bands", path)
	}
	data, err := readBand(bands[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("%s has no geotransform: %w", path, err)
	}

	nodata := raster.DefaultNoData
	if nd, ok := bands[0].NoData(); ok {
		nodata = nd
	}
	sr := ds.SpatialRef()
	if sr != nil {
		defer sr.Close()
	}
	return &raster.Raster{
		Data:         data,
		NoData:       nodata,
		GeoTransform: raster.GeoTransform(gt),
		CRS:          describeSRS(sr),
	}, nil
}

func writeGTiff(path string, r *raster.Raster) error {
	w, h := r.Size()
	if w == 0 || h == 0 {
		return fmt.Errorf("refusing to write an empty raster to %s", path)
	}
	code, ok := crs.ParseEPSG(r.CRS)
	if !ok {
		return fmt.Errorf("%w: cannot write %s with crs %q", raster.ErrCRSResolution, path, r.CRS)
	}

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, w, h,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fillDataset(ds, r, code); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return ds.Close()
}

func fillDataset(ds *godal.Dataset, r *raster.Raster, epsg int) error {
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return fmt.Errorf("%w: EPSG:%d: %v", raster.ErrCRSResolution, epsg, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return err
	}
	if err := ds.SetGeoTransform([6]float64(r.GeoTransform)); err != nil {
		return err
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(r.NoData); err != nil {
		return err
	}
	w, h := r.Size()
	buf := make([]float32, 0, w*h)
	for y := range r.Data {
		for x, v := range r.Data[y] {
			if r.IsNoData(x, y) {
				v = r.NoData
			}
			buf = append(buf, float32(v))
		}
	}
	return band.Write(0, 0, buf, w, h)
}

func readBand(band godal.Band) (raster.Band, error) {
	xSize := band.Structure().SizeX
	ySize := band.Structure().SizeY
	data := make([]float64, xSize*ySize)
	if err := band.Read(0, 0, data, xSize, ySize); err != nil {
		return nil, err
	}
	return raster.BandFromSlice(data, xSize, ySize)
}
