package polar

type readConfig struct {
	tags            TagCodec
	forceLegacyTags bool
}

// ReadOption configures Read.
type ReadOption func(*readConfig)

// WithTagCodec replaces DefaultTagCodec for block entity tags.
func WithTagCodec(codec TagCodec) ReadOption {
	return func(c *readConfig) {
		c.tags = codec
	}
}

// WithForceLegacyTags reads every block entity tag with the legacy layout,
// whatever the archive revision. It exists for archives written by tools
// that kept the old layout after the revision bump.
func WithForceLegacyTags(force bool) ReadOption {
	return func(c *readConfig) {
		c.forceLegacyTags = force
	}
}

type writeConfig struct {
	tags TagCodec
}

// WriteOption configures Write.
type WriteOption func(*writeConfig)

// WithWriteTagCodec replaces DefaultTagCodec when writing block entity tags.
func WithWriteTagCodec(codec TagCodec) WriteOption {
	return func(c *writeConfig) {
		c.tags = codec
	}
}

// features is the per-revision behaviour of one archive, resolved once
// before decoding starts.
type features struct {
	splitLightFlags bool
	optionalTags    bool
	chunkUserData   bool
	legacyTags      bool
	remapGrass      bool
}

func featuresFor(version int16, forceLegacyTags bool) features {
	return features{
		splitLightFlags: version > VersionUnifiedLight,
		optionalTags:    version > VersionUserDataOptionalBlockEntityTag,
		chunkUserData:   version > VersionUserDataOptionalBlockEntityTag,
		legacyTags:      version <= VersionTagReaderBreak || forceLegacyTags,
		remapGrass:      version < VersionShortGrass,
	}
}
