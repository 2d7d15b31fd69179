package sequence

import "fmt"

// Config selects and parameterizes a sequence model.
type Config struct {
	Type        string            `yaml:"type"`
	Autoencoder AutoencoderParams `yaml:"autoencoder"`
	Drift       DriftParams       `yaml:"drift"`
}

// FromConfig creates an unfitted Model. Empty type selects the PCA autoencoder.
func FromConfig(cfg Config) (Model, error) {
	switch cfg.Type {
	case TypePCAAutoencoder, "":
		return NewPCAAutoencoder(cfg.Autoencoder), nil
	case TypeDrift:
		return NewDrift(cfg.Drift), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Type)
	}
}
