package qti

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

const manifestName = "imsmanifest.xml"

// max size of one file inside an uploaded package
const maxEntrySize = 4 << 20

type manifest struct {
	XMLName   xml.Name   `xml:"manifest"`
	Xmlns     string     `xml:"xmlns,attr,omitempty"`
	ID        string     `xml:"identifier,attr,omitempty"`
	Resources []resource `xml:"resources>resource"`
}

type resource struct {
	ID    string `xml:"identifier,attr"`
	Type  string `xml:"type,attr"`
	Href  string `xml:"href,attr"`
	Files []file `xml:"file"`
}

type file struct {
	Href string `xml:"href,attr"`
}

// Decode reads either a single item document or a zipped content package.
func Decode(b []byte) ([]Item, error) {
	if bytes.HasPrefix(b, []byte("PK")) {
		return ReadPackage(b)
	}
	it, err := ParseItem(b)
	if err != nil {
		return nil, err
	}
	return []Item{it}, nil
}

// ReadPackage reads every item resource listed in the package manifest, in
// manifest order.
func ReadPackage(b []byte) ([]Item, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, errors.Wrap(err, "open package")
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[path.Clean(f.Name)] = f
	}
	mf, ok := files[manifestName]
	if !ok {
		return nil, errors.New(manifestName + " not found")
	}
	raw, err := readEntry(mf)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := xml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "decode manifest")
	}

	var items []Item
	for _, r := range m.Resources {
		if !strings.HasPrefix(r.Type, "imsqti_item") {
			continue
		}
		f, ok := files[path.Clean(r.Href)]
		if !ok {
			return nil, errors.Errorf("resource %s: %s not in package", r.ID, r.Href)
		}
		doc, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		it, err := ParseItem(doc)
		if err != nil {
			return nil, errors.Wrapf(err, "resource %s", r.ID)
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, errors.New("package has no item resources")
	}
	return items, nil
}

// WritePackage zips qs as one item file each plus a manifest.
func WritePackage(id string, qs []exam.Question) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	m := manifest{Xmlns: "http://www.imsglobal.org/xsd/imscp_v1p1", ID: id}
	for _, q := range qs {
		doc, err := MarshalItem(q)
		if err != nil {
			return nil, err
		}
		name := "items/" + itemID(q.ID) + ".xml"
		w, err := zw.Create(name)
		if err != nil {
			return nil, errors.Wrap(err, "write package")
		}
		if _, err := w.Write(doc); err != nil {
			return nil, errors.Wrap(err, "write package")
		}
		m.Resources = append(m.Resources, resource{
			ID:    itemID(q.ID),
			Type:  "imsqti_item_xmlv2p1",
			Href:  name,
			Files: []file{{Href: name}},
		})
	}
	mb, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode manifest")
	}
	w, err := zw.Create(manifestName)
	if err != nil {
		return nil, errors.Wrap(err, "write package")
	}
	if _, err := w.Write(append([]byte(xml.Header), mb...)); err != nil {
		return nil, errors.Wrap(err, "write package")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "write package")
	}
	return buf.Bytes(), nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, errors.Errorf("%s is too large", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", f.Name)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", f.Name)
	}
	if len(b) > maxEntrySize {
		return nil, errors.Errorf("%s is too large", f.Name)
	}
	return b, nil
}
