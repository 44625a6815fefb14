package demo

// ConsVar is one configuration variable override captured at record time.
// Streams at or after 0x000e key variables by Name; older streams by NetID.
type ConsVar struct {
	Name    string
	NetID   uint16
	Value   string
	Stealth bool
}

func writeVars(c *Cursor, l Layout, vars []ConsVar) {
	c.WriteU16(uint16(len(vars)))
	for _, v := range vars {
		if l.LegacyVars {
			c.WriteU16(v.NetID)
		} else {
			c.WriteString(v.Name)
		}
		c.WriteString(v.Value)
		c.WriteU8(boolByte(v.Stealth))
	}
}

func readVars(c *Cursor, l Layout) []ConsVar {
	count := int(c.ReadU16())
	if c.Err() != nil {
		return nil
	}
	vars := make([]ConsVar, 0, min(count, c.Remaining()))
	for i := 0; i < count; i++ {
		var v ConsVar
		if l.LegacyVars {
			v.NetID = c.ReadU16()
		} else {
			v.Name = c.ReadString()
		}
		v.Value = c.ReadString()
		v.Stealth = c.ReadU8() != 0
		if c.Err() != nil {
			return vars
		}
		vars = append(vars, v)
	}
	return vars
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
