package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimClient is a reverse-geocoding Backend over the Nominatim API.
type NominatimClient struct {
	baseURL string
	hc      *http.Client
}

// NewNominatimClient creates a client. If httpClient is nil, a default with
// timeout is used.
func NewNominatimClient(baseURL string, httpClient *http.Client) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &NominatimClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      httpClient,
	}
}

// nominatimResponse represents the JSON response from the Nominatim reverse API.
type nominatimResponse struct {
	Name        string           `json:"name"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	Amenity       string `json:"amenity,omitempty"`
	Shop          string `json:"shop,omitempty"`
	Tourism       string `json:"tourism,omitempty"`
	HouseNumber   string `json:"house_number,omitempty"`
	Road          string `json:"road,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty"`
	Suburb        string `json:"suburb,omitempty"`
	City          string `json:"city,omitempty"`
	Town          string `json:"town,omitempty"`
	Village       string `json:"village,omitempty"`
	State         string `json:"state,omitempty"`
	Country       string `json:"country,omitempty"`
}

// Lookup queries Nominatim for the placemark at a coordinate. A coordinate
// with no result returns (nil, nil).
func (c *NominatimClient) Lookup(ctx context.Context, lat, lon float64) (*Placemark, error) {
	// zoom=18 gives building-level detail
	reqURL := fmt.Sprintf(
		"%s/reverse?lat=%.6f&lon=%.6f&format=jsonv2&zoom=18&addressdetails=1",
		c.baseURL, lat, lon,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	// Required by Nominatim ToS
	req.Header.Set("User-Agent", "odyssee-discovery/1.0")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	var nr nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return nil, fmt.Errorf("failed to parse nominatim response: %w", err)
	}

	pm := placemarkFromResponse(nr)
	if *pm == (Placemark{}) {
		return nil, nil
	}
	return pm, nil
}

// placemarkFromResponse maps Nominatim address components onto the generic
// placemark fields consumed by the resolver's extraction chain.
func placemarkFromResponse(nr nominatimResponse) *Placemark {
	addr := nr.Address

	name := nr.Name
	if name == "" {
		for _, c := range []string{addr.Amenity, addr.Shop, addr.Tourism} {
			if c != "" {
				name = c
				break
			}
		}
	}

	street := addr.Road
	if street != "" && addr.HouseNumber != "" {
		street = addr.HouseNumber + " " + addr.Road
	}

	subLocality := addr.Neighbourhood
	if subLocality == "" {
		subLocality = addr.Suburb
	}

	city := addr.City
	if city == "" {
		city = addr.Town
	}
	if city == "" {
		city = addr.Village
	}

	return &Placemark{
		Name:        name,
		Street:      street,
		SubLocality: subLocality,
		City:        city,
		AdminArea:   addr.State,
		Country:     addr.Country,
	}
}
