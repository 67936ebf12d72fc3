package ppu

// fetchStep is one of the background fetcher's five states.
type fetchStep int

const (
	fetchGetTile fetchStep = iota
	fetchDataLow
	fetchDataHigh
	fetchLoad
	fetchIdle
)

// fetcherState holds the background/window fetcher's progress.
type fetcherState struct {
	state      fetchStep
	dotsInStep uint8
	tileX      uint8 // column of the tile currently being fetched, 0..31
	tileID     uint8
	lowByte    uint8
	highByte   uint8
	windowMode bool
}

// spriteFetch tracks an in-progress sprite tile fetch that steals the
// pixel clock from the background fetcher.
type spriteFetch struct {
	entry      spriteEntry
	waiting    bool // WaitingForFetcher phase
	step       uint8 // 0,1,2 within FetchingData (tile id / low / high)
	dotsInStep uint8
	lowByte    uint8
	highByte   uint8
}

// primeBackgroundShifter performs the single priming tile fetch that
// happens once, right after Mode 3's pipeline-priming window, and loads
// the background shifter unconditionally (it starts empty).
func (p *PPU) primeBackgroundShifter() {
	tileID, lowByte, highByte := p.fetchBackgroundTile(0)
	p.bgShifterLo = lowByte
	p.bgShifterHi = highByte
	p.bgShifterLen = 8
	p.fetcher = fetcherState{state: fetchGetTile, tileX: 1}
	_ = tileID
}

// fetchBackgroundTile resolves and reads one BG or window tile's two
// bitplane bytes for the current scanline (or window line).
func (p *PPU) fetchBackgroundTile(tileX uint8) (tileID, lowByte, highByte uint8) {
	var tileMapBase uint16
	var fineY uint16
	if p.fetcher.windowMode {
		tileMapBase = 0x1800
		if p.lcdc&LCDCWindowTileMap != 0 {
			tileMapBase = 0x1C00
		}
		fineY = p.windowLineCounter % 8
	} else {
		tileMapBase = 0x1800
		if p.lcdc&LCDCBGTileMap != 0 {
			tileMapBase = 0x1C00
		}
		fineY = (uint16(p.ly) + uint16(p.scy)) % 8
	}

	var mapCol uint16
	var mapRow uint16
	if p.fetcher.windowMode {
		mapCol = uint16(tileX) & 31
		mapRow = (p.windowLineCounter / 8) & 31
	} else {
		mapCol = (uint16(tileX) + uint16(p.scx)/8) & 31
		mapRow = ((uint16(p.ly) + uint16(p.scy)) / 8) & 31
	}

	tileMapAddr := tileMapBase + mapRow*32 + mapCol
	tileID = p.vram[tileMapAddr]

	useSigned := p.lcdc&LCDCBGTileData == 0
	tileDataBase := uint16(0)
	if useSigned {
		tileDataBase = 0x0800
	}
	tileAddr := p.bgTileDataAddr(tileID, useSigned, tileDataBase) + fineY*2
	lowByte = p.vram[tileAddr]
	highByte = p.vram[tileAddr+1]
	return tileID, lowByte, highByte
}

func (p *PPU) bgTileDataAddr(tileID uint8, useSigned bool, base uint16) uint16 {
	if useSigned {
		signed := int16(int8(tileID))
		return uint16(int32(base) + 0x0800 + int32(signed)*16) //nolint:gosec // bounded tile index arithmetic
	}
	return base + uint16(tileID)*16
}

// advanceBackgroundFetcher runs the 5-state fetcher one dot. A tile fetch
// takes 6 dots (2 each for GetTile/DataLow/DataHigh); Load only completes
// once the shifter has drained (len 0), at which point it pushes 8 fresh
// pixels and the fetcher restarts on the next tile column.
func (p *PPU) advanceBackgroundFetcher() {
	f := &p.fetcher
	switch f.state {
	case fetchGetTile:
		f.dotsInStep++
		if f.dotsInStep >= 2 {
			f.dotsInStep = 0
			f.state = fetchDataLow
		}
	case fetchDataLow:
		f.dotsInStep++
		if f.dotsInStep >= 2 {
			f.dotsInStep = 0
			f.state = fetchDataHigh
		}
	case fetchDataHigh:
		f.dotsInStep++
		if f.dotsInStep >= 2 {
			f.dotsInStep = 0
			f.state = fetchLoad
			f.tileID, f.lowByte, f.highByte = p.fetchBackgroundTile(f.tileX)
		}
	case fetchLoad:
		if p.bgShifterLen == 0 {
			p.bgShifterLo = f.lowByte
			p.bgShifterHi = f.highByte
			p.bgShifterLen = 8
			f.tileX++
			f.state = fetchGetTile
		}
	case fetchIdle:
	}
}

// checkWindowTrigger resets the pipeline into window mode the dot after
// the window first becomes visible on this pixel column.
func (p *PPU) checkWindowTrigger() {
	if p.lcdc&LCDCWindowEnable == 0 || p.fetcher.windowMode || p.windowTriggeredRow {
		return
	}
	if uint16(p.ly) < uint16(p.wy) {
		return
	}
	wx := int(p.wx) - 7
	if p.pixelX != wx {
		return
	}
	p.bgShifterLen = 0
	p.objShifterLen = 0
	p.roxyCounter = 0
	p.roxyGateOpen = true // window ignores the fine-scroll gate
	p.fetcher = fetcherState{state: fetchGetTile, tileX: 0, windowMode: true}
	p.windowTriggeredRow = true
	p.windowLineCounter++
}

// checkSpriteTrigger starts a sprite fetch when the pixel clock reaches a
// stored sprite's X and OBJ rendering is enabled.
func (p *PPU) checkSpriteTrigger() {
	if p.activeSprite != nil || p.lcdc&LCDCOBJEnable == 0 {
		return
	}
	for i := range p.spriteStore {
		s := p.spriteStore[i]
		if int(s.x) < p.pixelX {
			continue
		}
		if int(s.x) == p.pixelX && s.x < 168 {
			p.activeSprite = &spriteFetch{entry: s, waiting: true}
		}
		break // store is X-sorted; nothing further can match this dot
	}
}

// advanceSpriteFetch runs the active sprite fetch's WaitingForFetcher and
// FetchingData phases, merging the result into the OBJ shifter on
// completion. The background fetcher keeps advancing during both phases,
// producing the documented 0-5-dot variable penalty.
func (p *PPU) advanceSpriteFetch() {
	sf := p.activeSprite
	p.advanceBackgroundFetcher()

	if sf.waiting {
		if p.fetcher.state == fetchLoad && p.bgShifterLen > 0 {
			sf.waiting = false
		}
		return
	}

	sf.dotsInStep++
	if sf.dotsInStep < 2 {
		return
	}
	sf.dotsInStep = 0
	switch sf.step {
	case 0:
		sf.step = 1
	case 1:
		addr := p.spriteTileAddr(sf.entry)
		sf.lowByte = p.vram[addr]
		sf.step = 2
	case 2:
		addr := p.spriteTileAddr(sf.entry) + 1
		sf.highByte = p.vram[addr]
		p.mergeSpriteIntoShifter(sf)
		p.activeSprite = nil
	}
}

func (p *PPU) spriteTileAddr(s spriteEntry) uint16 {
	height := uint8(8)
	if p.lcdc&LCDCOBJSize != 0 {
		height = 16
	}
	line := s.lineOff
	if s.attrs&SpriteAttrYFlip != 0 {
		line = height - 1 - line
	}
	tileID := s.tileIndex
	if height == 16 {
		tileID &^= 0x01
		if line >= 8 {
			tileID++
			line -= 8
		}
	}
	return uint16(tileID)*16 + uint16(line)*2
}

// mergeSpriteIntoShifter overlays a fetched sprite tile onto the OBJ
// shifter: only color-0 slots are overwritten, and an existing opaque
// pixel always wins, implementing DMG sprite priority by store order.
func (p *PPU) mergeSpriteIntoShifter(sf *spriteFetch) {
	for i := 0; i < 8; i++ {
		bit := 7 - i
		if sf.entry.attrs&SpriteAttrXFlip != 0 {
			bit = i
		}
		lo := (sf.lowByte >> bit) & 1
		hi := (sf.highByte >> bit) & 1
		color := (hi << 1) | lo

		if i >= p.objShifterLen {
			p.objShifterColor[i] = 0
		}
		if p.objShifterColor[i] != 0 {
			continue // existing opaque pixel wins
		}
		if color == 0 {
			continue // transparent sprite pixel never overwrites
		}
		p.objShifterColor[i] = color
		if sf.entry.attrs&SpriteAttrPriority != 0 {
			p.objShifterPriority[i] = 1
		} else {
			p.objShifterPriority[i] = 0
		}
		if sf.entry.attrs&SpriteAttrPalette != 0 {
			p.objShifterPalette[i] = 1
		} else {
			p.objShifterPalette[i] = 0
		}
	}
	if p.objShifterLen < 8 {
		p.objShifterLen = 8
	}
}

// shiftPixel runs one pixel clock: shifts the BG and OBJ shifters, mixes
// the result, and (when the fine-scroll gate is open) writes one pixel to
// the framebuffer and advances PX.
func (p *PPU) shiftPixel() {
	if p.bgShifterLen == 0 {
		return // stalled waiting for the fetcher to refill
	}

	bgLo := (p.bgShifterLo >> 7) & 1
	bgHi := (p.bgShifterHi >> 7) & 1
	p.bgShifterLo <<= 1
	p.bgShifterHi <<= 1
	p.bgShifterLen--
	bgColor := (bgHi << 1) | bgLo
	if p.lcdc&LCDCBGWindowEnable == 0 {
		bgColor = 0
	}

	var objColor, objPriority, objPalette uint8
	if p.objShifterLen > 0 {
		objColor = p.objShifterColor[0]
		objPriority = p.objShifterPriority[0]
		objPalette = p.objShifterPalette[0]
		copy(p.objShifterColor[:], p.objShifterColor[1:])
		copy(p.objShifterPriority[:], p.objShifterPriority[1:])
		copy(p.objShifterPalette[:], p.objShifterPalette[1:])
		p.objShifterLen--
	}

	if !p.roxyGateOpen {
		if p.roxyCounter == p.scx&7 {
			p.roxyGateOpen = true
		} else {
			p.roxyCounter++
			return // pixel shifted internally but not emitted; PX unchanged
		}
	}

	spriteWins := p.lcdc&LCDCOBJEnable != 0 && objColor != 0 && (objPriority == 0 || bgColor == 0)

	var palette, colorIndex uint8
	if spriteWins {
		colorIndex = objColor
		palette = p.obp0
		if objPalette == 1 {
			palette = p.obp1
		}
	} else {
		colorIndex = bgColor
		palette = p.bgp
	}

	if p.pixelX >= 8 && p.pixelX < 168 {
		shade := (palette >> (colorIndex * 2)) & 0x03
		p.framebuffer[int(p.ly)*ScreenWidth+(p.pixelX-8)] = shade
	}
	p.pixelX++
}
