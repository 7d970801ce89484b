package common

// RecordingFileStartBytes is the magic prefix of every .pdrec file ("Cage").
var RecordingFileStartBytes []byte = []byte{0x43, 0x61, 0x67, 0x65}

const (
	RecordingHeaderLength             = 22
	RecordingFileFormatVersion uint16 = 0x0000
	RecordingFileExtension            = ".pdrec"
)

/*

A recording file is laid out as:

	StartBytes  [4]byte   "Cage"
	Version     uint16    little endian, currently 0
	RecordingID [16]byte  128-bit id, little endian
	Payload     []byte    gzip-compressed tar archive

The archive holds one "metadata" member and one member per universe.

*/

type RecordingHeader struct {
	StartBytes  [4]byte
	Version     uint16
	RecordingID [16]byte
}

type StorageMode string

const (
	StorageModeLocal StorageMode = "local"
	StorageModeS3    StorageMode = "s3"
)

type S3StorageInfo struct {
	Bucket         string
	Region         string
	Prefix         string
	Endpoint       string
	ForcePathStyle bool
}

func (ssi S3StorageInfo) Type() string {
	return string(StorageModeS3)
}
