package config

func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigIsNil
	}
	if err := c.Node.Validate(); err != nil {
		return err
	}
	if err := c.Buffer.Validate(); err != nil {
		return err
	}
	if err := c.Bus.Validate(); err != nil {
		return err
	}
	if err := c.Journal.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *NodeConfig) Validate() error {
	if c.MaxClockOffsetMs < 0 {
		return ErrNegativeOffset
	}
	return nil
}

func (c *BufferConfig) Validate() error {
	if c.Mode != ModePlain && c.Mode != ModePartitioned {
		return ErrUnknownMode
	}

	if c.WindowMs <= 0 || c.MinWindowMs <= 0 || c.MaxWindowMs <= 0 {
		return ErrNonPositiveWindow
	}

	if c.WindowMs < c.MinWindowMs || c.WindowMs > c.MaxWindowMs {
		return ErrWindowOutOfRange
	}

	return nil
}

func (c *BusConfig) Validate() error {
	return nil
}

func (c *JournalConfig) Validate() error {
	if c.Enabled && c.Path == "" {
		return ErrJournalPathMissing
	}
	return nil
}
