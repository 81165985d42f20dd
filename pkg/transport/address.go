package transport

import (
	"fmt"

	"github.com/google/uuid"
)

// ServiceUUID values for the two 16-bit service-data advertisements mesh
// devices use.
const (
	ServiceUUIDUnprovisioned = 0x1827
	ServiceUUIDProvisioned   = 0x1828
)

// Provisioned advertisement types, the leading byte of 0x1828's service
// data.
const (
	AdvTypeNetworkID        = 0x00
	AdvTypeIdentityHash     = 0x01
	AdvTypeIdentityHashAlt2 = 0x02
	AdvTypeIdentityHashAlt3 = 0x03
)

// UnprovisionedAdvertisement is the parsed service data for 0x1827: a
// Device UUID (RFC 4122 layout, used here only as a 16-byte opaque
// identifier — the mesh spec does not require it be a valid UUID
// variant) plus a 2-byte OOB information bitmap.
type UnprovisionedAdvertisement struct {
	DeviceUUID uuid.UUID
	OOBInfo    uint16
}

// ProvisionedAdvertisement is the parsed service data for 0x1828.
type ProvisionedAdvertisement struct {
	AdvertisementType uint8
	Hash              [8]byte // Network ID (type 0) or identity hash (type 1-3)
}

// ParseUnprovisionedServiceData parses 0x1827 service data: 16-byte
// Device UUID followed by a 2-byte OOB info field, big-endian.
func ParseUnprovisionedServiceData(data []byte) (UnprovisionedAdvertisement, error) {
	if len(data) != 18 {
		return UnprovisionedAdvertisement{}, fmt.Errorf("%w: unprovisioned service data must be 18 bytes, got %d", ErrMalformedAdvertisement, len(data))
	}
	id, err := uuid.FromBytes(data[0:16])
	if err != nil {
		return UnprovisionedAdvertisement{}, fmt.Errorf("%w: %v", ErrMalformedAdvertisement, err)
	}
	return UnprovisionedAdvertisement{
		DeviceUUID: id,
		OOBInfo:    uint16(data[16])<<8 | uint16(data[17]),
	}, nil
}

// ParseProvisionedServiceData parses 0x1828 service data: a 1-byte
// advertisement type followed by 8 bytes of Network ID or identity hash.
func ParseProvisionedServiceData(data []byte) (ProvisionedAdvertisement, error) {
	if len(data) != 9 {
		return ProvisionedAdvertisement{}, fmt.Errorf("%w: provisioned service data must be 9 bytes, got %d", ErrMalformedAdvertisement, len(data))
	}
	adv := ProvisionedAdvertisement{AdvertisementType: data[0]}
	copy(adv.Hash[:], data[1:9])
	return adv, nil
}

// ParseAdvertisement dispatches on the 16-bit service-data UUID to
// ParseUnprovisionedServiceData or ParseProvisionedServiceData, and
// folds the result into a Peer ready to hand to Adapter.Open.
func ParseAdvertisement(serviceUUID uint16, data []byte) (Peer, error) {
	switch serviceUUID {
	case ServiceUUIDUnprovisioned:
		adv, err := ParseUnprovisionedServiceData(data)
		if err != nil {
			return Peer{}, err
		}
		var id [16]byte
		copy(id[:], adv.DeviceUUID[:])
		return Peer{DeviceUUID: id, Provisioned: false}, nil

	case ServiceUUIDProvisioned:
		adv, err := ParseProvisionedServiceData(data)
		if err != nil {
			return Peer{}, err
		}
		peer := Peer{Provisioned: true}
		if adv.AdvertisementType == AdvTypeNetworkID {
			peer.NetworkID = append([]byte(nil), adv.Hash[:]...)
		} else {
			peer.IdentityHash = append([]byte(nil), adv.Hash[:]...)
		}
		return peer, nil

	default:
		return Peer{}, ErrUnrecognizedServiceUUID
	}
}
