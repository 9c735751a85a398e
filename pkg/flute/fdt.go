// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package flute

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
)

// FDTFile describes one object carried by the session, serialized as
// a <File> element of the FDT Instance XML (RFC 6726 §3.4).
type FDTFile struct {
	XMLName         xml.Name `xml:"File"`
	TOI             uint64   `xml:"TOI,attr"`
	ContentLocation string   `xml:"Content-Location,attr"`
	ContentLength   int      `xml:"Content-Length,attr"`
	ContentMD5      string   `xml:"Content-MD5,attr,omitempty"`
	ContentEncoding string   `xml:"Content-Encoding,attr,omitempty"`
	FECOTIScheme    int      `xml:"FEC-OTI-FEC-Encoding-ID,attr"`
}

// FDTInstance is the FDT Instance XML document describing every
// object announced since the last instance (spec §4.8).
type FDTInstance struct {
	XMLName xml.Name  `xml:"FDT-Instance"`
	Files   []FDTFile `xml:"File"`
}

// Object is one FLUTE file queued for transmission: its content
// location, TOI, and (optionally MD5-checked) byte content.
type Object struct {
	TOI             uint64
	ContentLocation string
	Data            []byte
	Encoding        ContentEncoding
	FEC             FECScheme
	md5sum          string
}

// NewObject constructs an Object, computing its MD5 if withMD5 is set
// (spec §4.8 "Configurable ... MD5 integrity").
func NewObject(toi uint64, contentLocation string, data []byte, encoding ContentEncoding, fec FECScheme, withMD5 bool) Object {
	o := Object{TOI: toi, ContentLocation: contentLocation, Data: data, Encoding: encoding, FEC: fec}
	if withMD5 {
		sum := md5.Sum(data)
		o.md5sum = hex.EncodeToString(sum[:])
	}
	return o
}

// FDTFile renders o as an FDT <File> element.
func (o Object) FDTFile() FDTFile {
	return FDTFile{
		TOI:             o.TOI,
		ContentLocation: o.ContentLocation,
		ContentLength:   len(o.Data),
		ContentMD5:      o.md5sum,
		ContentEncoding: encodingHeaderValue(o.Encoding),
		FECOTIScheme:    int(o.FEC),
	}
}

func encodingHeaderValue(e ContentEncoding) string {
	if e == EncodingNull {
		return ""
	}
	return e.String()
}

// MarshalFDTInstance serializes objs into one FDT Instance XML
// document.
func MarshalFDTInstance(objs []Object) ([]byte, error) {
	inst := FDTInstance{}
	for _, o := range objs {
		inst.Files = append(inst.Files, o.FDTFile())
	}
	body, err := xml.Marshal(inst)
	if err != nil {
		return nil, fmt.Errorf("flute: marshal FDT instance: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// ContentLocationFor builds the `file://frame_{pts}_{send_time}.bin`
// URI convention used by every point-cloud frame object (spec §4.8/§6).
func ContentLocationFor(presentationTimeUS, sendTimeUS uint64) string {
	return fmt.Sprintf("file://frame_%d_%d.bin", presentationTimeUS, sendTimeUS)
}
