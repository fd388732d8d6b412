package dto

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sloohtools/slooh-downloader/internal/model"
)

// FlexString is a string that also accepts JSON numbers. The Slooh API
// mixes the two freely for ids and counts, sometimes within one response.
type FlexString string

// UnmarshalJSON accepts both "123" and 123.
func (fs *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*fs = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*fs = FlexString(n.String())
	return nil
}

// String returns the underlying string value.
func (fs FlexString) String() string {
	return string(fs)
}

// Int returns the numeric value, or 0 when empty or non-numeric.
func (fs FlexString) Int() int {
	n, err := strconv.Atoi(string(fs))
	if err != nil {
		return 0
	}
	return n
}

// JSONPicture represents one photoroll entry from getMyPictures.
type JSONPicture struct {
	ImageID            FlexString `json:"imageId"`
	CustomerImageID    FlexString `json:"customerImageId"`
	MissionID          FlexString `json:"missionId"`
	ScheduledMissionID FlexString `json:"scheduledMissionId"`
	ImageTitle         string     `json:"imageTitle"`
	ImageDownloadURL   string     `json:"imageDownloadURL"`
	ImageFilename      string     `json:"imageDownloadFilename"`
	ImageType          string     `json:"imageType"`
	TelescopeName      string     `json:"telescopeName"`
	InstrumentName     string     `json:"instrumentName"`
	DisplayDate        string     `json:"displayDate"`
	DisplayTime        string     `json:"displayTime"`
}

// ToPicture converts a JSONPicture to a model.Picture at the given
// 1-based photoroll position.
func (jp *JSONPicture) ToPicture(position int) *model.Picture {
	missionID := jp.MissionID.String()
	if model.NormalizeMissionID(missionID) == "" {
		missionID = jp.ScheduledMissionID.String()
	}

	imageType := jp.ImageType
	if imageType == "" {
		imageType = "png"
	}
	telescope := jp.TelescopeName
	if telescope == "" {
		telescope = "Unknown"
	}
	instrument := jp.InstrumentName
	if instrument == "" {
		instrument = "Unknown"
	}

	ts, _ := model.ParseDisplayTimestamp(jp.DisplayDate, jp.DisplayTime)

	return &model.Picture{
		ImageID:         jp.ImageID.String(),
		CustomerImageID: jp.CustomerImageID.String(),
		MissionID:       model.NormalizeMissionID(missionID),
		Title:           strings.TrimSpace(jp.ImageTitle),
		DownloadURL:     jp.ImageDownloadURL,
		Filename:        jp.ImageFilename,
		Type:            imageType,
		Telescope:       telescope,
		Instrument:      instrument,
		DisplayDate:     jp.DisplayDate,
		DisplayTime:     strings.TrimSuffix(jp.DisplayTime, " UTC"),
		Timestamp:       ts,
		Position:        position,
	}
}

// PicturesResponse is the body of /api/images/getMyPictures.
type PicturesResponse struct {
	TotalCount FlexString    `json:"totalCount"`
	ImageCount FlexString    `json:"imageCount"`
	ImageList  []JSONPicture `json:"imageList"`
}

// JSONFITSImage is one FITS file entry inside a mission group.
type JSONFITSImage struct {
	ImageID    FlexString `json:"imageId"`
	ImageURL   string     `json:"imageURL"`
	ImageTitle string     `json:"imageTitle"`
}

// JSONFITSGroup is a per-instrument group of FITS files.
type JSONFITSGroup struct {
	GroupName      string          `json:"groupName"`
	GroupImageList []JSONFITSImage `json:"groupImageList"`
}

// FITSResponse is the body of /api/images/getMissionFITS.
type FITSResponse struct {
	GroupList []JSONFITSGroup `json:"groupList"`
}

// ToPictures flattens the instrument groups of a FITS response into
// model.Pictures for the given mission. Contextual fields (title,
// telescope, display date/time) come from the triggering picture and
// are filled in by the caller.
func (fr *FITSResponse) ToPictures(missionID string) []*model.Picture {
	var pics []*model.Picture
	for _, group := range fr.GroupList {
		instrument := group.GroupName
		if instrument == "" {
			instrument = "Unknown"
		}
		for _, img := range group.GroupImageList {
			pics = append(pics, &model.Picture{
				ImageID:     img.ImageID.String(),
				MissionID:   model.NormalizeMissionID(missionID),
				Title:       strings.TrimSpace(img.ImageTitle),
				DownloadURL: img.ImageURL,
				Type:        "FITS",
				Instrument:  instrument,
			})
		}
	}
	return pics
}

// TokenResponse is the body of /api/app/generateSessionToken.
type TokenResponse struct {
	SloohSessionToken string `json:"sloohSessionToken"`
}

// LoginResponse is the body of /api/users/login. The API signals failure
// in-band with loginError=="true" rather than a non-2xx status.
type LoginResponse struct {
	LoginError     string     `json:"loginError"`
	ErrorMsg       string     `json:"errorMsg"`
	ErrorCode      FlexString `json:"errorCode"`
	UserID         FlexString `json:"userid"`
	UserIDAlt      FlexString `json:"userId"`
	DisplayName    string     `json:"displayName"`
	Username       string     `json:"username"`
	Email          string     `json:"emailAddress"`
	At             FlexString `json:"at"`
	CID            FlexString `json:"cid"`
	Token          FlexString `json:"token"`
	CustomerUUID   string     `json:"customerUuid"`
	MembershipType string     `json:"membershipType"`
}
