package geometry

import (
	"fmt"
	"math"

	"smartflow/models"

	"github.com/paulmach/orb"
)

// stopGap separates the stop point from the edge of the crossing.
const stopGap = 20.0

// Intersection is a single four-way crossing centered in a Width x Height
// pane. Traffic drives on the right; each street carries one lane per way.
type Intersection struct {
	Width  float64
	Height float64
}

func (g Intersection) Route(v *models.Vehicle, _ *orb.Point) (Route, error) {
	if g.Width <= 0 || g.Height <= 0 {
		return Route{}, ErrEmptyLayout
	}

	path := g.path(v.Origin, v.Movement)
	if path == nil {
		return Route{}, fmt.Errorf("%w: intersection %s from %s", ErrUnsupportedRoute, v.Movement, v.Origin)
	}
	return Route{Path: path}, nil
}

func (g Intersection) path(origin models.Direction, movement models.Movement) orb.LineString {
	w, h := g.Width, g.Height
	street := math.Min(w, h) / 4

	nIn, nOut := w/2-street/4, w/2+street/4
	sIn, sOut := w/2+street/4, w/2-street/4
	eIn, eOut := h/2-street/4, h/2+street/4
	wIn, wOut := h/2+street/4, h/2-street/4

	stopN := orb.Point{nIn, h/2 - street/2 - stopGap}
	stopS := orb.Point{sIn, h/2 + street/2 + stopGap}
	stopE := orb.Point{w/2 + street/2 + stopGap, eIn}
	stopW := orb.Point{w/2 - street/2 - stopGap, wIn}

	exitN := orb.Point{nOut, -VehicleOffset}
	exitS := orb.Point{sOut, h + VehicleOffset}
	exitE := orb.Point{w + VehicleOffset, eOut}
	exitW := orb.Point{-VehicleOffset, wOut}

	switch origin {
	case models.North:
		start := orb.Point{nIn, -VehicleOffset}
		switch movement {
		case models.Straight:
			return orb.LineString{start, stopN, {nIn, stopS.Y()}, exitS}
		case models.TurnRight:
			return orb.LineString{start, stopN, {nIn, stopN.Y() + stopGap}, {stopW.X(), wOut}, exitW}
		case models.TurnLeft:
			return orb.LineString{start, stopN, {nIn, eOut}, {stopE.X(), eOut}, exitE}
		case models.UTurn:
			return orb.LineString{start, stopN, {nOut, stopN.Y() + stopGap}, exitN}
		}
	case models.South:
		start := orb.Point{sIn, h + VehicleOffset}
		switch movement {
		case models.Straight:
			return orb.LineString{start, stopS, {sIn, stopN.Y()}, exitN}
		case models.TurnRight:
			return orb.LineString{start, stopS, {sIn, stopS.Y() - stopGap}, {stopE.X(), eOut}, exitE}
		case models.TurnLeft:
			return orb.LineString{start, stopS, {sIn, wOut}, {stopW.X(), wOut}, exitW}
		case models.UTurn:
			return orb.LineString{start, stopS, {sOut, stopS.Y() - stopGap}, exitS}
		}
	case models.East:
		start := orb.Point{w + VehicleOffset, eIn}
		switch movement {
		case models.Straight:
			return orb.LineString{start, stopE, {stopW.X(), eIn}, exitW}
		case models.TurnRight:
			return orb.LineString{start, stopE, {nOut, eIn}, {nOut, stopN.Y()}, exitN}
		case models.TurnLeft:
			return orb.LineString{start, stopE, {stopE.X() - stopGap, eIn}, {sOut, stopS.Y()}, exitS}
		case models.UTurn:
			return orb.LineString{start, stopE, {stopE.X() - stopGap, eOut}, exitE}
		}
	case models.West:
		start := orb.Point{-VehicleOffset, wIn}
		switch movement {
		case models.Straight:
			return orb.LineString{start, stopW, {stopE.X(), wIn}, exitE}
		case models.TurnRight:
			return orb.LineString{start, stopW, {sOut, wIn}, {sOut, stopS.Y()}, exitS}
		case models.TurnLeft:
			return orb.LineString{start, stopW, {stopW.X() + stopGap, wIn}, {nOut, stopN.Y()}, exitN}
		case models.UTurn:
			return orb.LineString{start, stopW, {stopW.X() + stopGap, wOut}, exitW}
		}
	}
	return nil
}
