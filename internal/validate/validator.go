// Package validate は抽出済み構成員レコードの業務ルール検証を提供する。
package validate

import (
	"regexp"
	"time"

	"github.com/NodirbekRare/famestate/internal/model"
)

// FieldSanitizer は検証通過後のテキストフィールドを正規化する。
// security.FieldSanitizerServiceが実装を提供する。
type FieldSanitizer interface {
	Sanitize(raw string) string
}

// birthDatePattern は生年月日のYYYY-MM-DD形式にマッチする。
// 形式チェック後にtime.Parseで暦日としての妥当性（2月30日等の排除）を検証する。
var birthDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// adultAge は申請者に要求される最低年齢。
const adultAge = 18

// Validator は構成員レコードの検証とサニタイズを行う。
type Validator struct {
	sanitizer FieldSanitizer
	now       func() time.Time
}

// NewValidator はValidatorの新しいインスタンスを生成する。
func NewValidator(sanitizer FieldSanitizer) *Validator {
	return &Validator{
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Validate は構成員レコード一覧を検証し、サニタイズ済みの一覧を返す。
// 検証は文書内の出現順に行い、最初の違反で中断してエラーを返す。
// 検証ルール:
//   - 必須フィールド（姓・名・生年月日・続柄）が空でないこと。父称は任意。
//   - 生年月日がYYYY-MM-DD形式の実在する暦日であること。
//   - 申請者フラグを持つ構成員がちょうど1人であること。
//   - 申請者が検証時点で18歳以上であること。
//
// 全レコードが検証を通過した場合のみ、氏名・続柄フィールドを
// サニタイズした結果を返す。入力スライスは変更しない。
func (v *Validator) Validate(members []model.ParsedMember) ([]model.ParsedMember, error) {
	applicantSeen := false
	for _, m := range members {
		if err := v.validateMember(m); err != nil {
			return nil, err
		}
		if m.IsApplicant {
			if applicantSeen {
				return nil, model.NewMultipleApplicantsError()
			}
			applicantSeen = true
			if err := v.validateApplicantAge(m); err != nil {
				return nil, err
			}
		}
	}
	if !applicantSeen {
		return nil, model.NewNoApplicantError()
	}

	sanitized := make([]model.ParsedMember, len(members))
	for i, m := range members {
		sanitized[i] = model.ParsedMember{
			LastName:    v.sanitizer.Sanitize(m.LastName),
			FirstName:   v.sanitizer.Sanitize(m.FirstName),
			MiddleName:  v.sanitizer.Sanitize(m.MiddleName),
			BirthDate:   m.BirthDate,
			Relation:    v.sanitizer.Sanitize(m.Relation),
			IsApplicant: m.IsApplicant,
		}
	}
	return sanitized, nil
}

// validateMember は単一レコードの必須フィールドと生年月日形式を検証する。
func (v *Validator) validateMember(m model.ParsedMember) error {
	required := []struct {
		name  string
		value string
	}{
		{"LastName", m.LastName},
		{"FirstName", m.FirstName},
		{"BirthDate", m.BirthDate},
		{"Relation", m.Relation},
	}
	for _, f := range required {
		if f.value == "" {
			return model.NewMissingFieldError(f.name)
		}
	}

	if !birthDatePattern.MatchString(m.BirthDate) {
		return model.NewInvalidDateFormatError(m.BirthDate)
	}
	if _, err := time.Parse("2006-01-02", m.BirthDate); err != nil {
		return model.NewInvalidDateFormatError(m.BirthDate)
	}

	return nil
}

// validateApplicantAge は申請者が18歳以上であることを検証する。
func (v *Validator) validateApplicantAge(m model.ParsedMember) error {
	birth, err := time.Parse("2006-01-02", m.BirthDate)
	if err != nil {
		return model.NewInvalidDateFormatError(m.BirthDate)
	}

	age := wholeYears(birth, v.now())
	if age < adultAge {
		name := (&model.Member{
			LastName:   m.LastName,
			FirstName:  m.FirstName,
			MiddleName: m.MiddleName,
		}).FullName()
		return model.NewUnderageApplicantError(name, age)
	}
	return nil
}

// wholeYears はbirthからnowまでの満年齢を返す。
// 誕生日当日を迎えるまでは前の年齢のままとなる。
func wholeYears(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	anniversary := birth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}
