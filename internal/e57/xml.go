package e57

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math/bits"
	"strconv"

	"github.com/banshee-data/scanstream/internal/cloud"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Prototype field kinds. The container packs each prototype field into its
// own bytestream; the kind decides how raw bits become a value.
type fieldKind uint8

const (
	fieldFloat fieldKind = iota
	fieldInteger
	fieldScaledInteger
)

// Well-known prototype element names.
const (
	elemCartesianX   = "cartesianX"
	elemCartesianY   = "cartesianY"
	elemCartesianZ   = "cartesianZ"
	elemColorRed     = "colorRed"
	elemColorGreen   = "colorGreen"
	elemColorBlue    = "colorBlue"
	elemInvalidState = "cartesianInvalidState"
)

// protoField describes one prototype element.
type protoField struct {
	name     string
	kind     fieldKind
	single   bool  // Float precision="single"
	min, max int64 // Integer and ScaledInteger bounds
	scale    float64
	offset   float64
	bitWidth uint // packed width for integer kinds
}

// width returns the packed bit width of one value.
func (f *protoField) width() uint {
	if f.kind == fieldFloat {
		if f.single {
			return 32
		}
		return 64
	}
	return f.bitWidth
}

// bitsFor returns the bits needed to represent values in [0, span].
func bitsFor(span uint64) uint {
	if span == 0 {
		return 0
	}
	return uint(bits.Len64(span))
}

// XML index document shapes. Bare local names match regardless of the
// document's default namespace.

type xmlRoot struct {
	XMLName    xml.Name  `xml:"e57Root"`
	FormatName string    `xml:"formatName"`
	GUID       string    `xml:"guid"`
	Data3D     xmlData3D `xml:"data3D"`
}

type xmlData3D struct {
	Children []xmlScan `xml:"vectorChild"`
}

type xmlScan struct {
	GUID   string    `xml:"guid"`
	Name   string    `xml:"name"`
	Pose   *xmlPose  `xml:"pose"`
	Points xmlPoints `xml:"points"`
}

type xmlPose struct {
	Rotation    xmlRotation    `xml:"rotation"`
	Translation xmlTranslation `xml:"translation"`
}

type xmlRotation struct {
	W float64 `xml:"w"`
	X float64 `xml:"x"`
	Y float64 `xml:"y"`
	Z float64 `xml:"z"`
}

type xmlTranslation struct {
	X float64 `xml:"x"`
	Y float64 `xml:"y"`
	Z float64 `xml:"z"`
}

type xmlPoints struct {
	FileOffset  int64        `xml:"fileOffset,attr"`
	RecordCount int64        `xml:"recordCount,attr"`
	Prototype   xmlPrototype `xml:"prototype"`
}

type xmlPrototype struct {
	Fields []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName   xml.Name
	Type      string `xml:"type,attr"`
	Precision string `xml:"precision,attr"`
	Minimum   string `xml:"minimum,attr"`
	Maximum   string `xml:"maximum,attr"`
	Scale     string `xml:"scale,attr"`
	Offset    string `xml:"offset,attr"`
}

func parseXMLIndex(data []byte) (*xmlRoot, error) {
	var root xmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse XML index: %w", err)
	}
	return &root, nil
}

// scanInfo is the decoded metadata for one scan entry.
type scanInfo struct {
	guid        string
	name        string
	pose        *cloud.Transform
	fileOffset  int64 // physical offset of the CompressedVector section
	recordCount int64
	proto       []protoField
}

func scanInfoFromXML(x xmlScan) (scanInfo, error) {
	info := scanInfo{
		guid:        x.GUID,
		name:        x.Name,
		fileOffset:  x.Points.FileOffset,
		recordCount: x.Points.RecordCount,
	}
	if info.recordCount < 0 {
		return info, fmt.Errorf("scan %q: negative record count %d", x.Name, info.recordCount)
	}
	if x.Pose != nil {
		info.pose = &cloud.Transform{
			Translation: r3.Vec{X: x.Pose.Translation.X, Y: x.Pose.Translation.Y, Z: x.Pose.Translation.Z},
			Rotation: quat.Number{
				Real: x.Pose.Rotation.W,
				Imag: x.Pose.Rotation.X,
				Jmag: x.Pose.Rotation.Y,
				Kmag: x.Pose.Rotation.Z,
			},
		}
	}
	proto, err := buildPrototype(x.Points.Prototype)
	if err != nil {
		return info, fmt.Errorf("scan %q: %w", x.Name, err)
	}
	info.proto = proto
	return info, nil
}

// hasCartesian reports whether the prototype carries all three Cartesian
// coordinate fields.
func (s *scanInfo) hasCartesian() bool {
	var x, y, z bool
	for i := range s.proto {
		switch s.proto[i].name {
		case elemCartesianX:
			x = true
		case elemCartesianY:
			y = true
		case elemCartesianZ:
			z = true
		}
	}
	return x && y && z
}

// hasColor reports whether the prototype carries all three color fields.
func (s *scanInfo) hasColor() bool {
	var r, g, b bool
	for i := range s.proto {
		switch s.proto[i].name {
		case elemColorRed:
			r = true
		case elemColorGreen:
			g = true
		case elemColorBlue:
			b = true
		}
	}
	return r && g && b
}

func buildPrototype(x xmlPrototype) ([]protoField, error) {
	fields := make([]protoField, 0, len(x.Fields))
	for _, xf := range x.Fields {
		f := protoField{name: xf.XMLName.Local, scale: 1}
		switch xf.Type {
		case "Float":
			f.kind = fieldFloat
			f.single = xf.Precision == "single"
		case "Integer":
			f.kind = fieldInteger
		case "ScaledInteger":
			f.kind = fieldScaledInteger
		default:
			return nil, fmt.Errorf("field %s: unsupported type %q", f.name, xf.Type)
		}
		if f.kind == fieldInteger || f.kind == fieldScaledInteger {
			var err error
			if f.min, err = parseInt(xf.Minimum, 0); err != nil {
				return nil, fmt.Errorf("field %s: minimum: %w", f.name, err)
			}
			if f.max, err = parseInt(xf.Maximum, 0); err != nil {
				return nil, fmt.Errorf("field %s: maximum: %w", f.name, err)
			}
			if f.max < f.min {
				return nil, fmt.Errorf("field %s: maximum %d below minimum %d", f.name, f.max, f.min)
			}
			f.bitWidth = bitsFor(uint64(f.max - f.min))
		}
		if f.kind == fieldScaledInteger {
			var err error
			if f.scale, err = parseFloat(xf.Scale, 1); err != nil {
				return nil, fmt.Errorf("field %s: scale: %w", f.name, err)
			}
			if f.offset, err = parseFloat(xf.Offset, 0); err != nil {
				return nil, fmt.Errorf("field %s: offset: %w", f.name, err)
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseInt(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

// buildXMLIndex renders the index document for the given scans. The writer
// emits the same shape the reader parses; string values ride in CDATA
// sections, floats use the shortest round-trippable form.
func buildXMLIndex(fileGUID string, scans []*scanMeta) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<e57Root type="Structure" xmlns="http://www.astm.org/COMMIT/E57/2010-e57-v1.0">` + "\n")
	fmt.Fprintf(&b, "  <formatName type=\"String\"><![CDATA[ASTM E57 3D Imaging Data File]]></formatName>\n")
	fmt.Fprintf(&b, "  <guid type=\"String\"><![CDATA[%s]]></guid>\n", fileGUID)
	b.WriteString("  <versionMajor type=\"Integer\">1</versionMajor>\n")
	b.WriteString("  <versionMinor type=\"Integer\">0</versionMinor>\n")
	b.WriteString("  <data3D type=\"Vector\" allowHeterogeneousChildren=\"1\">\n")
	for _, s := range scans {
		b.WriteString("    <vectorChild type=\"Structure\">\n")
		fmt.Fprintf(&b, "      <guid type=\"String\"><![CDATA[%s]]></guid>\n", s.guid)
		fmt.Fprintf(&b, "      <name type=\"String\"><![CDATA[%s]]></name>\n", s.name)
		if s.pose != nil {
			b.WriteString("      <pose type=\"Structure\">\n")
			b.WriteString("        <rotation type=\"Structure\">\n")
			fmt.Fprintf(&b, "          <w type=\"Float\">%s</w>\n", formatFloat(s.pose.Rotation.Real))
			fmt.Fprintf(&b, "          <x type=\"Float\">%s</x>\n", formatFloat(s.pose.Rotation.Imag))
			fmt.Fprintf(&b, "          <y type=\"Float\">%s</y>\n", formatFloat(s.pose.Rotation.Jmag))
			fmt.Fprintf(&b, "          <z type=\"Float\">%s</z>\n", formatFloat(s.pose.Rotation.Kmag))
			b.WriteString("        </rotation>\n")
			b.WriteString("        <translation type=\"Structure\">\n")
			fmt.Fprintf(&b, "          <x type=\"Float\">%s</x>\n", formatFloat(s.pose.Translation.X))
			fmt.Fprintf(&b, "          <y type=\"Float\">%s</y>\n", formatFloat(s.pose.Translation.Y))
			fmt.Fprintf(&b, "          <z type=\"Float\">%s</z>\n", formatFloat(s.pose.Translation.Z))
			b.WriteString("        </translation>\n")
			b.WriteString("      </pose>\n")
		}
		fmt.Fprintf(&b, "      <points type=\"CompressedVector\" fileOffset=\"%d\" recordCount=\"%d\">\n",
			s.fileOffset, s.recordCount)
		b.WriteString("        <prototype type=\"Structure\">\n")
		for i := range s.proto {
			writePrototypeField(&b, &s.proto[i])
		}
		b.WriteString("        </prototype>\n")
		b.WriteString("        <codecs type=\"Vector\" allowHeterogeneousChildren=\"1\"/>\n")
		b.WriteString("      </points>\n")
		b.WriteString("    </vectorChild>\n")
	}
	b.WriteString("  </data3D>\n")
	b.WriteString("</e57Root>\n")
	return b.Bytes()
}

func writePrototypeField(b *bytes.Buffer, f *protoField) {
	switch f.kind {
	case fieldFloat:
		precision := "double"
		if f.single {
			precision = "single"
		}
		fmt.Fprintf(b, "          <%s type=\"Float\" precision=\"%s\"/>\n", f.name, precision)
	case fieldInteger:
		fmt.Fprintf(b, "          <%s type=\"Integer\" minimum=\"%d\" maximum=\"%d\"/>\n",
			f.name, f.min, f.max)
	case fieldScaledInteger:
		fmt.Fprintf(b, "          <%s type=\"ScaledInteger\" minimum=\"%d\" maximum=\"%d\" scale=\"%s\" offset=\"%s\"/>\n",
			f.name, f.min, f.max, formatFloat(f.scale), formatFloat(f.offset))
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
